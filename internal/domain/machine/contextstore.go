package machine

// ContextStore is the typed key/value context owned exclusively by one
// machine instance. It is only ever mutated inside that instance's lane
// during event processing, so it carries no lock. Typed accessors return a
// TypeMismatchError instead of panicking on a bad cast.
type ContextStore struct {
	values  map[string]any
	version uint64
}

// NewContextStore creates a store seeded with the given values.
func NewContextStore(seed map[string]any) *ContextStore {
	values := make(map[string]any, len(seed))
	for k, v := range seed {
		values[k] = v
	}
	return &ContextStore{values: values}
}

// Version counts mutations since creation.
func (s *ContextStore) Version() uint64 {
	return s.version
}

// Get returns the raw value for key.
func (s *ContextStore) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// GetString returns the value for key as a string.
func (s *ContextStore) GetString(key string) (string, error) {
	v, ok := s.values[key]
	if !ok {
		return "", &TypeMismatchError{Key: key, Want: "string", Got: "missing"}
	}
	str, ok := v.(string)
	if !ok {
		return "", &TypeMismatchError{Key: key, Want: "string", Got: typeName(v)}
	}
	return str, nil
}

// GetInt returns the value for key as an int64. JSON-decoded numbers arrive
// as float64 and are accepted when integral.
func (s *ContextStore) GetInt(key string) (int64, error) {
	v, ok := s.values[key]
	if !ok {
		return 0, &TypeMismatchError{Key: key, Want: "int", Got: "missing"}
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n == float64(int64(n)) {
			return int64(n), nil
		}
	}
	return 0, &TypeMismatchError{Key: key, Want: "int", Got: typeName(v)}
}

// GetFloat returns the value for key as a float64.
func (s *ContextStore) GetFloat(key string) (float64, error) {
	v, ok := s.values[key]
	if !ok {
		return 0, &TypeMismatchError{Key: key, Want: "float", Got: "missing"}
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, &TypeMismatchError{Key: key, Want: "float", Got: typeName(v)}
}

// GetBool returns the value for key as a bool.
func (s *ContextStore) GetBool(key string) (bool, error) {
	v, ok := s.values[key]
	if !ok {
		return false, &TypeMismatchError{Key: key, Want: "bool", Got: "missing"}
	}
	b, ok := v.(bool)
	if !ok {
		return false, &TypeMismatchError{Key: key, Want: "bool", Got: typeName(v)}
	}
	return b, nil
}

// Set stores a value and bumps the version.
func (s *ContextStore) Set(key string, value any) {
	s.values[key] = value
	s.version++
}

// Delete removes a key and bumps the version when it existed.
func (s *ContextStore) Delete(key string) {
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.version++
	}
}

// Snapshot returns a shallow copy of the stored values.
func (s *ContextStore) Snapshot() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Params flattens the store for expression evaluation: nested
// map[string]any values additionally appear under dotted keys.
func (s *ContextStore) Params() map[string]any {
	params := make(map[string]any, len(s.values))
	for k, v := range s.values {
		params[k] = v
	}
	flattenParams("", s.values, params)
	return params
}

func flattenParams(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch vv := v.(type) {
		case map[string]any:
			flattenParams(key, vv, out)
		default:
			out[key] = vv
		}
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "nil"
	case string:
		return "string"
	case bool:
		return "bool"
	case int, int64:
		return "int"
	case float64:
		return "float"
	case map[string]any:
		return "map"
	case []any:
		return "list"
	default:
		return "other"
	}
}
