package storage

import (
	"errors"
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// codecVersion is the first byte of every encoded value.
const codecVersion byte = 1

type envelope struct {
	Kind   Kind     `msgpack:"k"`
	Count  int64    `msgpack:"c,omitempty"`
	Set    []string `msgpack:"s,omitempty"`
	Phrase *Phrase  `msgpack:"p,omitempty"`
}

// Encode serializes v for backends that store bytes. The encoding is a
// version byte followed by a msgpack envelope tagged with the value kind.
func Encode(v Value) ([]byte, error) {
	env := envelope{}
	switch tv := v.(type) {
	case Count:
		env.Kind, env.Count = KindCount, int64(tv)
	case Set:
		env.Kind, env.Set = KindSet, tv
	case Phrase:
		env.Kind, env.Phrase = KindPhrase, &tv
	case nil:
		return nil, errors.New("cannot encode nil value")
	default:
		return nil, fmt.Errorf("cannot encode value of type %T", v)
	}
	body, err := msgpack.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", env.Kind, err)
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, codecVersion)
	return append(out, body...), nil
}

// Decode parses bytes produced by Encode. Any deviation from the expected
// shape is returned as an error; callers wrap it as a malformed value.
func Decode(data []byte) (Value, error) {
	if len(data) == 0 {
		return nil, errors.New("empty payload")
	}
	if data[0] != codecVersion {
		return nil, fmt.Errorf("unsupported codec version %d", data[0])
	}
	var env envelope
	if err := msgpack.Unmarshal(data[1:], &env); err != nil {
		return nil, fmt.Errorf("unmarshaling envelope: %w", err)
	}
	switch env.Kind {
	case KindCount:
		if env.Count < 0 {
			return nil, fmt.Errorf("negative count %d", env.Count)
		}
		return Count(env.Count), nil
	case KindSet:
		if !sort.StringsAreSorted(env.Set) {
			return nil, errors.New("set members are not sorted")
		}
		for i := 1; i < len(env.Set); i++ {
			if env.Set[i] == env.Set[i-1] {
				return nil, fmt.Errorf("duplicate set member %q", env.Set[i])
			}
		}
		return Set(env.Set), nil
	case KindPhrase:
		if env.Phrase == nil {
			return nil, errors.New("phrase envelope without body")
		}
		return *env.Phrase, nil
	default:
		return nil, fmt.Errorf("unknown value kind %d", env.Kind)
	}
}
