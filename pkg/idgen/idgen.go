package idgen

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mbeoliero/nexo-chat/pkg/constant"
	"github.com/sony/sonyflake"
)

// IDGenerator is the interface for generating client-side message ids
type IDGenerator interface {
	// NextID generates a new unique ID
	NextID() (string, error)
}

// New returns the generator registered under kind
func New(kind string) (IDGenerator, error) {
	switch kind {
	case "", constant.IdGeneratorTime:
		return NewTimeRandGenerator(), nil
	case constant.IdGeneratorUUID:
		return NewUUIDGenerator(), nil
	case constant.IdGeneratorSonyflake:
		return NewSonyflakeGenerator(1)
	default:
		return nil, fmt.Errorf("unknown id generator: %s", kind)
	}
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// TimeRandGenerator produces "<unix millis>_<6 base36 chars>" ids.
// Collisions are improbable, not impossible; the ids are not secrets.
type TimeRandGenerator struct {
	now func() time.Time
}

// NewTimeRandGenerator creates a new TimeRandGenerator
func NewTimeRandGenerator() *TimeRandGenerator {
	return &TimeRandGenerator{now: time.Now}
}

// NextID generates a new time-based id
func (g *TimeRandGenerator) NextID() (string, error) {
	var sb strings.Builder
	sb.WriteString(strconv.FormatInt(g.now().UnixMilli(), 10))
	sb.WriteByte('_')
	for i := 0; i < 6; i++ {
		sb.WriteByte(base36[rand.IntN(len(base36))])
	}
	return sb.String(), nil
}

// SonyflakeGenerator implements IDGenerator using sonyflake
type SonyflakeGenerator struct {
	sf *sonyflake.Sonyflake
}

// NewSonyflakeGenerator creates a new SonyflakeGenerator
func NewSonyflakeGenerator(machineID uint16) (*SonyflakeGenerator, error) {
	st := sonyflake.Settings{
		StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		MachineID: func() (uint16, error) {
			return machineID, nil
		},
	}

	sf, err := sonyflake.New(st)
	if err != nil {
		return nil, fmt.Errorf("failed to create sonyflake: %w", err)
	}

	return &SonyflakeGenerator{sf: sf}, nil
}

// NextID generates a new unique ID
func (g *SonyflakeGenerator) NextID() (string, error) {
	id, err := g.sf.NextID()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return strconv.FormatUint(id, 10), nil
}

// UUIDGenerator implements IDGenerator using UUID v4
type UUIDGenerator struct{}

// NewUUIDGenerator creates a new UUIDGenerator
func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

// NextID generates a new UUID
func (g *UUIDGenerator) NextID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate uuid: %w", err)
	}
	return id.String(), nil
}
