package oracle

const classifyPrompt = `Score these %d news articles for a portfolio-tracking service. Return a JSON object with a 'results' key containing an array of objects. It is CRITICAL that you return exactly %d objects in the 'results' array, one for each article provided, in the same order.

Each result object MUST have:
- index (integer, matching the [ID] below)
- impact_score (0-100): How much could this news move markets or the named companies?
  - 0-20: Routine coverage, opinion, recaps
  - 21-40: Notable but priced-in or minor developments
  - 41-60: Material company or sector news
  - 61-85: Major developments likely to move prices
  - 86-100: Market-wide shocks, M&A, bankruptcy, regulatory action
- sentiment (-1.0 to 1.0): negative for bearish news, positive for bullish
- matched_tickers (array of strings): tickers from the watchlist below that this article is materially about. Only use tickers from the watchlist; return [] when none apply.

Watchlist: %s

Articles:
`

const explainPrompt = `Explain these %d market events for an investor holding the listed positions. Return a JSON object with a 'results' key containing an array of objects, exactly %d objects, one per event, in the same order.

Each result object MUST have:
- index (integer, matching the [ID] below)
- headline (string): one short sentence naming the event
- body (string): 2-3 sentences on what happened and why it matters to the holdings listed. No meta-language.

Holdings: %s

Events:
`
