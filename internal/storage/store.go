// Package storage holds scan sessions for the lifetime of the
// process. The store is the only mutable container for a session;
// every mutation goes through Update's merge so concurrent writers
// cannot lose fields to each other.
package storage

import (
	"errors"

	"github.com/synjan/qascan/pkg/models"
)

var (
	ErrDuplicateID = errors.New("scan session already exists")
	ErrNotFound    = errors.New("scan session not found")
)

type Store interface {
	Create(session models.ScanSession) error
	Get(id string) (models.ScanSession, error)
	Update(id string, update models.SessionUpdate) (models.ScanSession, error)
	ListByOwner(owner string) []models.ScanSession
}
