package order

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Counter exposes the persisted order count.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// NumberFunc formats the order reference for the given sequence value. The
// Postgres store calls it with a value drawn from an atomic sequence inside
// the order-creation transaction, which closes the lost-update race a plain
// count-then-format read would have.
type NumberFunc func(seq int64) string

// NumberGenerator produces human-readable order references of the form
// "<year>-<group>-<group>": the configured offset plus the order sequence,
// split into zero-padded groups of up to four digits.
type NumberGenerator struct {
	Offset int64
	Now    func() time.Time
}

// Format renders the reference for the given one-based order sequence value.
func (g NumberGenerator) Format(seq int64) string {
	n := g.Offset + seq
	digits := strconv.FormatInt(n, 10)
	if len(digits)%2 != 0 {
		digits = "0" + digits
	}
	mid := len(digits) / 2
	return fmt.Sprintf("%d-%s-%s", g.now().Year(), pad4(digits[:mid]), pad4(digits[mid:]))
}

// Generate formats the reference following the persisted order count. The
// read is not serialized against concurrent order creation; use Format with
// a store-issued sequence value when uniqueness matters.
func (g NumberGenerator) Generate(ctx context.Context, counter Counter) (string, error) {
	count, err := counter.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("order: count: %w", err)
	}
	return g.Format(count + 1), nil
}

func (g NumberGenerator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func pad4(s string) string {
	if len(s) >= 4 {
		return s
	}
	return strings.Repeat("0", 4-len(s)) + s
}
