package validator

import "time"

// Group merges the records that share a URL across content items.
type Group struct {
	URL string

	// Status and CheckedAt come from the first record seen for URL; the
	// values of later records are discarded.
	Status    Status
	CheckedAt time.Time

	// ContentIDs lists the originating content items in first-seen order.
	ContentIDs []string
}

// GroupByURL collapses records into one Group per distinct URL. Groups are
// returned in the order their URL was first encountered.
func GroupByURL(records []*Record) []*Group {
	var (
		groups []*Group
		byURL  = make(map[string]*Group)
	)
	for _, r := range records {
		if g, ok := byURL[r.URL]; ok {
			g.ContentIDs = appendUnique(g.ContentIDs, r.ContentID)
			continue
		}

		g := &Group{
			URL:        r.URL,
			Status:     r.Status,
			CheckedAt:  r.CheckedAt,
			ContentIDs: []string{r.ContentID},
		}
		byURL[r.URL] = g
		groups = append(groups, g)
	}
	return groups
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
