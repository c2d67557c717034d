package idgen

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
)

const (
	referencePrefix = "BK"
	randomAlphabet  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	randomLength    = 4
)

// Generator produces booking references.
type Generator interface {
	NextReference() (string, error)
}

// ReferenceGenerator combines a snowflake id (time, node, sequence) with a
// random suffix, so references are unique across nodes and hard to guess.
type ReferenceGenerator struct {
	node *snowflake.Node
	mu   sync.Mutex
}

// NewReferenceGenerator creates a generator. nodeID must be unique per
// running instance (0-1023).
func NewReferenceGenerator(nodeID int64) (*ReferenceGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %w", err)
	}
	return &ReferenceGenerator{node: node}, nil
}

func (g *ReferenceGenerator) NextReference() (string, error) {
	g.mu.Lock()
	id := g.node.Generate()
	g.mu.Unlock()

	suffix, err := randomString(randomLength)
	if err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return referencePrefix + strings.ToUpper(id.Base36()) + suffix, nil
}

func randomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = randomAlphabet[int(b)%len(randomAlphabet)]
	}
	return string(buf), nil
}

var _ Generator = (*ReferenceGenerator)(nil)
