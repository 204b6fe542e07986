package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/pscheid92/worldsync/internal/domain"
)

// EncodeEntity renders {entity: props}.
func EncodeEntity(entity string, props domain.Properties) ([]byte, error) {
	if props == nil {
		props = domain.Properties{}
	}
	data, err := json.Marshal(map[string]domain.Properties{entity: props})
	if err != nil {
		return nil, fmt.Errorf("encode entity %q: %w", entity, err)
	}
	return data, nil
}

// SeedMessages renders one {entity: props} message per entity in world,
// ordered by entity name. Entities that cannot be encoded are skipped and
// reported in the returned error.
func SeedMessages(world domain.World) ([][]byte, error) {
	messages := make([][]byte, 0, len(world))
	var failed []string
	for _, name := range world.Names() {
		data, err := EncodeEntity(name, world[name])
		if err != nil {
			failed = append(failed, name)
			continue
		}
		messages = append(messages, data)
	}
	if len(failed) > 0 {
		return messages, fmt.Errorf("encode seed for entities %v", failed)
	}
	return messages, nil
}
