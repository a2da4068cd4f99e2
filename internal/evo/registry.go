package evo

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"qsoul/internal/model"
)

var (
	ErrOperatorExists   = errors.New("operator already registered")
	ErrOperatorNotFound = errors.New("operator not found")
)

// OperatorSet maps each mutation kind to the operator that carries it out.
type OperatorSet struct {
	mu sync.RWMutex
	m  map[model.MutationKind]Operator
}

func NewOperatorSet(ops ...Operator) (*OperatorSet, error) {
	set := &OperatorSet{m: make(map[model.MutationKind]Operator, len(ops))}
	for _, op := range ops {
		if err := set.Register(op); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func (s *OperatorSet) Register(op Operator) error {
	if op == nil {
		return errors.New("operator is required")
	}
	kind := op.Kind()
	if kind == model.MutationNone {
		return fmt.Errorf("operator kind %s is not selectable", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.m[kind]; exists {
		return fmt.Errorf("%w: %s", ErrOperatorExists, kind)
	}
	s.m[kind] = op
	return nil
}

func (s *OperatorSet) Resolve(kind model.MutationKind) (Operator, error) {
	s.mu.RLock()
	op, ok := s.m[kind]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOperatorNotFound, kind)
	}
	return op, nil
}

func (s *OperatorSet) Kinds() []model.MutationKind {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kinds := make([]model.MutationKind, 0, len(s.m))
	for kind := range s.m {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
