// Package memory remembers patient details across conversations.
//
// After a successful booking the patient's name, phone, email, procedure
// interest, indication, and the booked instant are written to Redis; the
// next time the same sender starts a conversation those fields are
// pre-filled so the assistant does not ask again. Memory is an
// optimization, not a requirement: when Redis is absent the Noop
// implementation is used and every conversation starts blank.
package memory

import (
	"context"
	"time"

	"github.com/clinicbot/margot/internal/models"
)

// Memory stores and recalls patient details by sender address.
type Memory interface {
	// LoadPatient returns remembered details for the sender, or (nil, nil)
	// when nothing is remembered.
	LoadPatient(ctx context.Context, sender string) (*models.PatientData, error)
	// SavePatient remembers the patient's details and, when non-zero, the
	// instant of their latest booking.
	SavePatient(ctx context.Context, sender string, data *models.PatientData, lastBooking time.Time) error
	Close() error
}

// NoopMemory remembers nothing. Used when no Redis address is configured.
type NoopMemory struct{}

// NewNoopMemory creates a memory that never remembers anything.
func NewNoopMemory() *NoopMemory { return &NoopMemory{} }

func (*NoopMemory) LoadPatient(ctx context.Context, sender string) (*models.PatientData, error) {
	return nil, nil
}

func (*NoopMemory) SavePatient(ctx context.Context, sender string, data *models.PatientData, lastBooking time.Time) error {
	return nil
}

func (*NoopMemory) Close() error { return nil }
