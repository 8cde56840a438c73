package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/clinicbot/margot/internal/models"
)

const keyPrefix = "memory:"

// RedisMemory stores patient details in a Redis hash per sender.
type RedisMemory struct {
	client *redis.Client
}

// NewRedisMemory connects to Redis at addr and verifies the connection.
func NewRedisMemory(ctx context.Context, addr, password string, db int) (*RedisMemory, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		slog.Error("RedisMemory failed to connect", "error", err, "addr", addr)
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	slog.Info("RedisMemory connected", "addr", addr, "db", db)
	return &RedisMemory{client: client}, nil
}

// LoadPatient reads the sender's remembered contact details. An absent key
// returns (nil, nil).
func (m *RedisMemory) LoadPatient(ctx context.Context, sender string) (*models.PatientData, error) {
	fields, err := m.client.HGetAll(ctx, keyPrefix+sender).Result()
	if err != nil {
		slog.Error("RedisMemory.LoadPatient failed", "error", err, "sender", sender)
		return nil, fmt.Errorf("failed to load patient memory: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	data := &models.PatientData{
		Name:       fields["name"],
		Phone:      fields["phone"],
		Email:      fields["email"],
		Procedure:  fields["procedure"],
		Indication: fields["indication"],
	}
	slog.Debug("RedisMemory.LoadPatient: patient recalled", "sender", sender, "has_name", data.Name != "")
	return data, nil
}

// SavePatient writes the patient's details to the sender's hash.
func (m *RedisMemory) SavePatient(ctx context.Context, sender string, data *models.PatientData, lastBooking time.Time) error {
	fields := map[string]interface{}{
		"name":       data.Name,
		"phone":      data.Phone,
		"email":      data.Email,
		"procedure":  data.Procedure,
		"indication": data.Indication,
	}
	if !lastBooking.IsZero() {
		fields["last_datetime"] = lastBooking.Format(time.RFC3339)
	}
	err := m.client.HSet(ctx, keyPrefix+sender, fields).Err()
	if err != nil {
		slog.Error("RedisMemory.SavePatient failed", "error", err, "sender", sender)
		return fmt.Errorf("failed to save patient memory: %w", err)
	}
	slog.Debug("RedisMemory.SavePatient: patient remembered", "sender", sender)
	return nil
}

// Close closes the Redis connection.
func (m *RedisMemory) Close() error {
	return m.client.Close()
}
