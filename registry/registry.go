// Package registry records marked content so that suspect copies can later be
// attributed: the payload hash goes to an external ledger, the reference luma
// plane and engine configuration stay in a local SQLite store.
package registry

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"slices"
	"time"

	watermark "github.com/yyyoichi/watermark_dct"
	"github.com/yyyoichi/watermark_dct/validator"
)

// DefaultSimilarity is the cosine similarity above which feature vectors match.
const DefaultSimilarity = 0.85

var ErrLedger = errors.New("ledger registration failed")

// Ledger publishes content ownership, typically to a blockchain contract.
type Ledger interface {
	Register(ctx context.Context, id, hash string, metadata map[string]string) error
}

// FeatureExtractor maps a frame to a fingerprint vector, typically with a
// pretrained network.
type FeatureExtractor interface {
	ExtractFeatures(ctx context.Context, frame image.Image) ([]float64, error)
}

type Registry struct {
	store    *Store
	engine   *watermark.Engine
	ledger   Ledger
	features FeatureExtractor
	now      func() time.Time
}

type Option func(*Registry)

func WithLedger(l Ledger) Option {
	return func(r *Registry) { r.ledger = l }
}

func WithFeatureExtractor(f FeatureExtractor) Option {
	return func(r *Registry) { r.features = f }
}

func New(store *Store, engine *watermark.Engine, opts ...Option) *Registry {
	r := &Registry{store: store, engine: engine, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PayloadHash returns the hex SHA-256 of message.
func PayloadHash(message string) string {
	h := sha256.Sum256([]byte(message))
	return hex.EncodeToString(h[:])
}

// Register marks frame with message and records it as id. The record is
// removed again when the ledger rejects it.
func (r *Registry) Register(ctx context.Context, id string, frame image.Image, message string, metadata map[string]string) (image.Image, error) {
	marked, err := r.engine.Embed(ctx, frame, message, r.engine.Strength())
	if err != nil {
		return nil, err
	}
	hash := PayloadHash(message)
	record := Record{
		ID:          id,
		Message:     message,
		PayloadHash: hash,
		Config:      r.engine.Config(),
		Metadata:    metadata,
		Reference:   reference(frame),
		CreatedAt:   r.now(),
	}
	if err := r.store.Put(ctx, record); err != nil {
		return nil, err
	}
	if r.features != nil {
		vector, err := r.features.ExtractFeatures(ctx, frame)
		if err == nil {
			err = r.store.PutFeatures(ctx, id, vector)
		}
		if err != nil {
			return nil, errors.Join(err, r.store.Delete(ctx, id))
		}
	}
	if r.ledger != nil {
		if err := r.ledger.Register(ctx, id, hash, metadata); err != nil {
			return nil, errors.Join(fmt.Errorf("%w: %w", ErrLedger, err), r.store.Delete(ctx, id))
		}
	}
	return marked, nil
}

// Report is the outcome of checking a candidate frame against a record.
type Report struct {
	ContentID  string
	Extraction watermark.Extraction
	// Verified is true when the candidate carries the registered message.
	Verified bool
	// Score is the luma correlation with the registered reference.
	Score float64
}

// Check compares candidate with the content registered as id.
func (r *Registry) Check(ctx context.Context, id string, candidate image.Image) (Report, error) {
	record, err := r.store.Get(ctx, id)
	if err != nil {
		return Report{}, err
	}
	engine, err := watermark.NewFromConfig(record.Config)
	if err != nil {
		return Report{}, err
	}
	x, err := engine.Extract(ctx, candidate, len(record.Message))
	if err != nil {
		return Report{}, err
	}
	score, err := validator.Score(record.Reference, candidate)
	if err != nil {
		return Report{}, err
	}
	return Report{
		ContentID:  id,
		Extraction: x,
		Verified:   x.Found && x.Message == record.Message,
		Score:      score,
	}, nil
}

// Identify extracts the message from candidate with the registry's engine
// and returns the contents registered with it.
func (r *Registry) Identify(ctx context.Context, candidate image.Image) ([]string, watermark.Extraction, error) {
	x, err := r.engine.Extract(ctx, candidate, 0)
	if err != nil || !x.Found {
		return nil, x, err
	}
	ids, err := r.store.FindByHash(ctx, PayloadHash(x.Message))
	return ids, x, err
}

// Similar returns registered contents whose features resemble candidate.
// It returns nothing when no FeatureExtractor is configured.
func (r *Registry) Similar(ctx context.Context, candidate image.Image, threshold float64) ([]Match, error) {
	if r.features == nil {
		return nil, nil
	}
	vector, err := r.features.ExtractFeatures(ctx, candidate)
	if err != nil {
		return nil, err
	}
	return r.store.Similar(ctx, vector, threshold)
}

func sortMatches(m []Match) {
	slices.SortFunc(m, func(a, b Match) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.ContentID, b.ContentID)
	})
}
