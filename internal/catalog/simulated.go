package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/apex/log"
	"github.com/david/product-scout/internal/models"
	"github.com/google/uuid"
)

// Simulated is an in-process catalog that hands out CAT-<prefix>-nnnn
// references. The prefix is drawn per instance, so ids handed out before a
// restart are never reissued.
type Simulated struct {
	mu        sync.Mutex
	prefix    string
	next      int
	published map[string]string
}

func NewSimulated() *Simulated {
	return &Simulated{
		prefix:    uuid.New().String()[:6],
		next:      1000,
		published: make(map[string]string),
	}
}

func (s *Simulated) Name() string { return "simulated" }

func (s *Simulated) Publish(_ context.Context, p models.Product) (PublishResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := fmt.Sprintf("CAT-%s-%04d", s.prefix, s.next)
	s.published[id] = p.URL
	log.WithFields(log.Fields{"url": p.URL, "catalog_id": id}).Info("catalog: simulated publish")
	return PublishResult{CatalogID: id}, nil
}

func (s *Simulated) Unpublish(_ context.Context, catalogID string) error {
	if catalogID == "" {
		return ErrMissingCatalogID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.published, catalogID)
	log.WithField("catalog_id", catalogID).Info("catalog: simulated unpublish")
	return nil
}

func (s *Simulated) Ping(context.Context) error { return nil }

// Published returns the number of products currently listed.
func (s *Simulated) Published() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}
