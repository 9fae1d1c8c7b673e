package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
)

// mockMongoDuplicateKeyError creates an error that IsMongoDuplicateKeyError will recognize.
func mockMongoDuplicateKeyError(id string) error {
	// IsMongoDuplicateKeyError checks for mongo.WriteException and then for code 11000.
	writeErr := mongo.WriteError{
		Code:    11000,
		Message: fmt.Sprintf("E11000 duplicate key error collection: facturacion.facturas index: _id_ dup key: { : \"%s\" }", id),
	}
	return mongo.WriteException{WriteErrors: []mongo.WriteError{writeErr}}
}

func TestWithRetries_SuccessfulFirstAttempt(t *testing.T) {
	var opCalled int
	operation := func() error {
		opCalled++
		return nil
	}

	err := WithRetries(operation, 3, IsMongoDuplicateKeyError)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if opCalled != 1 {
		t.Errorf("Expected operation to be called 1 time, got %d", opCalled)
	}
}

func TestWithRetries_FailureNonDuplicateKey(t *testing.T) {
	var opCalled int
	expectedErr := errors.New("some other error")
	operation := func() error {
		opCalled++
		return expectedErr
	}

	err := WithRetries(operation, 3, IsMongoDuplicateKeyError)
	if !errors.Is(err, expectedErr) {
		t.Errorf("Expected error %v, got %v", expectedErr, err)
	}
	if opCalled != 1 {
		t.Errorf("Expected operation to be called 1 time, got %d", opCalled)
	}
}

func TestWithRetries_ExhaustRetries(t *testing.T) {
	var opCalled int
	collidingID := uuid.NewString()

	operation := func() error {
		opCalled++
		// Always return a duplicate key error for this test
		return mockMongoDuplicateKeyError(collidingID)
	}

	maxRetries := 3
	err := WithRetries(operation, maxRetries, IsMongoDuplicateKeyError)

	if err == nil {
		t.Fatal("Expected a duplicate key error, got nil")
	}
	if !IsMongoDuplicateKeyError(err) {
		t.Errorf("Expected a Mongo duplicate key error, got %T: %v", err, err)
	}

	expectedOpCalls := maxRetries + 1
	if opCalled != expectedOpCalls {
		t.Errorf("Expected operation to be called %d times, got %d", expectedOpCalls, opCalled)
	}
}

func TestTry_CollisionResolves(t *testing.T) {
	id1 := uuid.NewString()
	id2 := uuid.NewString()

	// The operation regenerates its id on each attempt, as the store inserts
	// do. Here the generator yields the colliding id twice before a fresh one.
	idsToGenerate := []string{id1, id1, id2}

	inserted := map[string]bool{id1: true} // pre-populate so id1 collides
	var opCalled int

	operation := func() error {
		newID := idsToGenerate[opCalled]
		opCalled++
		if inserted[newID] {
			return mockMongoDuplicateKeyError(newID)
		}
		inserted[newID] = true
		return nil
	}

	if err := Try(operation); err != nil {
		t.Fatalf("Expected no error as collision should resolve, got: %v", err)
	}

	expectedOpCalls := 3
	if opCalled != expectedOpCalls {
		t.Errorf("Expected operation to be called %d times, got %d", expectedOpCalls, opCalled)
	}
	if !inserted[id2] {
		t.Errorf("Expected ID %s to be inserted after retry", id2)
	}
	if len(inserted) != 2 {
		t.Errorf("Expected 2 unique IDs to be inserted, got %d", len(inserted))
	}
}
