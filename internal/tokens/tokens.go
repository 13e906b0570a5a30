// Package tokens estimates the size of rendered prompts.
package tokens

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/tiktoken-go/tokenizer"
)

// Count is the result of counting a text.
type Count struct {
	Tokens int
	// Estimated is true when the count comes from the character heuristic
	// rather than a real tokenizer.
	Estimated bool
}

// Counter counts tokens in text.
type Counter interface {
	Count(text string) Count
}

// TiktokenCounter counts with a BPE encoding and falls back to the
// character estimator if the encoding cannot be loaded or fails.
type TiktokenCounter struct {
	encoding tokenizer.Encoding
	fallback *Estimator

	once  sync.Once
	codec tokenizer.Codec
	err   error
}

// NewTiktokenCounter creates a counter for encoding. An empty encoding
// selects cl100k_base.
func NewTiktokenCounter(encoding tokenizer.Encoding) *TiktokenCounter {
	if encoding == "" {
		encoding = tokenizer.Cl100kBase
	}
	return &TiktokenCounter{encoding: encoding, fallback: NewEstimator()}
}

func (c *TiktokenCounter) load() (tokenizer.Codec, error) {
	c.once.Do(func() {
		c.codec, c.err = tokenizer.Get(c.encoding)
		if c.err != nil {
			c.err = errors.Wrapf(c.err, "failed to get tokenizer encoding %s", c.encoding)
		}
	})
	return c.codec, c.err
}

// Count implements Counter.
func (c *TiktokenCounter) Count(text string) Count {
	codec, err := c.load()
	if err != nil {
		return c.fallback.Count(text)
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return c.fallback.Count(text)
	}
	return Count{Tokens: len(ids)}
}

// Estimator approximates token counts from character length.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{CharsPerToken: 4.0}
}

// Count implements Counter.
func (e *Estimator) Count(text string) Count {
	if text == "" {
		return Count{Estimated: true}
	}
	n := int(float64(len(text)) / e.CharsPerToken)
	if n == 0 {
		n = 1
	}
	return Count{Tokens: n, Estimated: true}
}
