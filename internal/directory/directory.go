package directory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"statementsync/internal/booking"
	"statementsync/pkg/textutil"

	"github.com/antzucaro/matchr"
)

// Expiry is how long a fetched directory stays fresh.
const Expiry = 24 * time.Hour

// Directory maps client ids to their display names.
type Directory struct {
	FetchedAt time.Time
	Customers map[string]string
}

func (d Directory) Len() int {
	return len(d.Customers)
}

// Name returns the display name of a client or a placeholder for unknown ids.
func (d Directory) Name(id string) string {
	return ResolveName(id, d.Customers)
}

// ResolveName returns the name of a client in customers or "Client_<id>".
func ResolveName(id string, customers map[string]string) string {
	name := customers[strings.TrimSpace(id)]
	if name == "" {
		return fmt.Sprintf("Client_%s", id)
	}
	return name
}

// Fresh reports whether the directory is still within its expiry window at now.
func (d Directory) Fresh(now time.Time) bool {
	return now.Before(d.FetchedAt.Add(Expiry))
}

type Match struct {
	Id    string
	Name  string
	Score float64
}

// Search ranks the directory's names by their Jaro-Winkler similarity to query
// and returns at most limit matches with a non-zero score, best first.
func (d Directory) Search(query string, limit int) []Match {
	query = textutil.NormalizeName(query)
	if query == "" || limit <= 0 {
		return nil
	}

	var matches []Match
	for id, name := range d.Customers {
		normalized := textutil.NormalizeName(name)
		score := matchr.JaroWinkler(query, normalized, false)
		if strings.Contains(normalized, query) {
			// substring hits always rank above pure edit-distance hits
			score += 1
		}
		if score <= 0 {
			continue
		}
		matches = append(matches, Match{Id: id, Name: name, Score: score})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Id < matches[j].Id
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// Fetcher retrieves one page of the customer listing.
//
// note: fault injection point
type Fetcher interface {
	Customers(ctx context.Context, page, pageSize int) (booking.CustomerPage, error)
}
