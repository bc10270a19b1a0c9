package benchmark

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Env is the extra container environment of an image configuration.
type Env map[string]string

// List renders the environment as sorted KEY=VALUE pairs.
func (e Env) List() []string {
	if len(e) == 0 {
		return nil
	}
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, e[k]))
	}
	return out
}

// UnmarshalJSON rejects documents that repeat a key, which encoding/json
// would otherwise resolve silently by keeping the last value.
func (e *Env) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*e = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("env must be an object")
	}

	out := Env{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("env %q: %w", key, err)
		}
		if _, dup := out[key]; dup {
			return fmt.Errorf("env key %q defined more than once", key)
		}
		out[key] = value
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*e = out
	return nil
}
