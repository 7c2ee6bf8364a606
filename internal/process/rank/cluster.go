package rank

import "github.com/tickwatch/tickwatch/internal/core/domain"

// Member is one clustered article with its similarity to the seed.
type Member struct {
	Article    *domain.Article
	Similarity float64
}

// Cluster groups articles about one event. The seed is always the
// first member with similarity 1.0.
type Cluster struct {
	Seed    *domain.Article
	Members []Member
}

// BuildClusters runs the greedy single-pass clustering over articles in
// input order. Each unclustered article seeds a new cluster and pulls
// in every remaining unclustered article whose similarity to the seed
// meets the threshold. Similarity is only ever measured against the
// seed, so membership is not transitive: an article close to a member
// but not to the seed starts its own cluster. Output depends on input
// order, which callers fix by sorting before clustering.
func BuildClusters(articles []*domain.Article, threshold float64) []Cluster {
	keywords := make([]map[string]bool, len(articles))
	for i, a := range articles {
		keywords[i] = Keywords(a.Title, a.Description)
	}

	clustered := make([]bool, len(articles))
	clusters := make([]Cluster, 0)

	for i, seed := range articles {
		if clustered[i] {
			continue
		}

		clustered[i] = true
		c := Cluster{
			Seed:    seed,
			Members: []Member{{Article: seed, Similarity: 1.0}},
		}

		for j := i + 1; j < len(articles); j++ {
			if clustered[j] {
				continue
			}

			sim := Jaccard(keywords[i], keywords[j])
			if sim >= threshold {
				clustered[j] = true
				c.Members = append(c.Members, Member{Article: articles[j], Similarity: sim})
			}
		}

		clusters = append(clusters, c)
	}

	return clusters
}
