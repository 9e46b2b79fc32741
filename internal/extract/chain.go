// Package extract turns an entity detail page into a crawler.Record by running
// one ordered strategy chain per field. The first strategy that yields a valid
// value wins; a field with no winner keeps its zero value.
package extract

import (
	"go.uber.org/zap"
)

// Strategy is one independent way of producing a field value. Apply reports
// false when it found nothing.
type Strategy[T any] struct {
	Name  string
	Apply func(doc *Document) (T, bool)
}

// Chain is the ordered list of strategies for a single field.
type Chain[T any] struct {
	Field      string
	Strategies []Strategy[T]
	// Valid rejects values a strategy produced but the field cannot accept.
	Valid func(T) bool
}

// Resolve runs the strategies in order and returns the first accepted value
// and the name of the strategy that produced it. A panicking strategy is
// treated as a miss.
func (c Chain[T]) Resolve(doc *Document, logger *zap.Logger) (T, string, bool) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, strategy := range c.Strategies {
		value, ok := c.try(strategy, doc, logger)
		if !ok {
			continue
		}
		if c.Valid != nil && !c.Valid(value) {
			continue
		}
		return value, strategy.Name, true
	}
	var zero T
	return zero, "", false
}

func (c Chain[T]) try(strategy Strategy[T], doc *Document, logger *zap.Logger) (value T, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Debug("extraction strategy panicked",
				zap.String("field", c.Field),
				zap.String("strategy", strategy.Name),
				zap.Any("panic", r),
			)
			var zero T
			value, ok = zero, false
		}
	}()
	if strategy.Apply == nil {
		return value, false
	}
	return strategy.Apply(doc)
}
