package jsonutil

import "encoding/json"

func MapToStruct(source map[string]any, target interface{}) error {
	data, err := json.Marshal(source)
	if err != nil {
		return err
	}

	err = json.Unmarshal(data, target)
	if err != nil {
		return err
	}

	return nil
}

func StructToMap(source interface{}) (map[string]any, error) {
	data, err := json.Marshal(source)
	if err != nil {
		return nil, err
	}

	var target map[string]any
	err = json.Unmarshal(data, &target)
	if err != nil {
		return nil, err
	}

	return target, nil
}

// MergeMaps overlays delta onto base: delta keys win, base keys absent from
// delta are preserved. Nested maps merge recursively so disjoint sub-keys
// survive independent writers.
func MergeMaps(base, delta map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(delta))
	for k, v := range base {
		out[k] = v
	}

	for k, v := range delta {
		existing, ok := out[k]
		if ok {
			existingMap, eok := existing.(map[string]any)
			deltaMap, dok := v.(map[string]any)
			if eok && dok {
				out[k] = MergeMaps(existingMap, deltaMap)
				continue
			}
		}
		out[k] = v
	}

	return out
}
