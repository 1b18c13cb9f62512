package artifact

import (
	"fmt"
	"os"

	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// ItemsFromJSONFile reads a JSON artifact containing an array of loop-item
// objects and converts it into an ordered item sequence. This is how a
// collection produced by an external template (e.g. a grid-info file written
// by a grid-splitting step) is discovered at run time.
func ItemsFromJSONFile(path string) ([]LoopItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading loop collection artifact: %w", err)
	}

	ty, err := ctyjson.ImpliedType(data)
	if err != nil {
		return nil, fmt.Errorf("inferring type of loop collection artifact %s: %w", path, err)
	}
	val, err := ctyjson.Unmarshal(data, ty)
	if err != nil {
		return nil, fmt.Errorf("decoding loop collection artifact %s: %w", path, err)
	}

	items, err := ItemsFromValue(val)
	if err != nil {
		return nil, fmt.Errorf("loop collection artifact %s: %w", path, err)
	}
	return items, nil
}
