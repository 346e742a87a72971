package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/leapstack-labs/flowsql/pkg/dataflow"
)

// JSON returns a stream over a file of JSON objects: either a top-level
// array or a sequence of objects such as JSON lines. Integral numbers read
// as BIGINT, others as DOUBLE; nested values are ANY.
func JSON(p *dataflow.Pipeline, name, path string, opts ...Option) (*dataflow.Stream, error) {
	return openRecords(p, name, path, readJSON, newOptions(opts))
}

func readJSON(r io.Reader, fn func(record) error) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return err
	}

	if tok == json.Delim('[') {
		for dec.More() {
			if err := expectObject(dec); err != nil {
				return err
			}
			if err := readObject(dec, fn); err != nil {
				return err
			}
		}
		_, err := dec.Token()
		return err
	}

	for {
		if tok != json.Delim('{') {
			return fmt.Errorf("expected a JSON object at offset %d", dec.InputOffset())
		}
		if err := readObject(dec, fn); err != nil {
			return err
		}
		tok, err = dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func expectObject(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok != json.Delim('{') {
		return fmt.Errorf("expected a JSON object at offset %d", dec.InputOffset())
	}
	return nil
}

// readObject decodes the members of an object whose opening brace has been
// consumed.
func readObject(dec *json.Decoder, fn func(record) error) error {
	rec := newRecord()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected an object key at offset %d", dec.InputOffset())
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return err
		}
		rec.set(key, jsonValue(v))
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return fn(rec)
}

func jsonValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		for k, e := range x {
			x[k] = jsonValue(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = jsonValue(e)
		}
		return x
	}
	return v
}
