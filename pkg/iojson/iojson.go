// Package iojson writes command output as indented JSON for machine
// consumers of the CLI.
package iojson

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// WriteWith marshals obj as indented JSON and writes it to w followed by a
// newline. If marshaling fails, a small hand-built error document is written
// to ew instead so callers scripting against the CLI always receive valid
// JSON on one of the two streams.
func WriteWith(w io.Writer, ew io.Writer, obj any) error {
	bits, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		// Marshal the message itself to keep the fallback document valid.
		msg, _ := json.Marshal(err.Error())
		_, werr := fmt.Fprintf(ew, `{"message":"marshal output","data":{"json_error":%s}}`+"\n", msg)
		return werr
	}

	_, err = fmt.Fprintln(w, string(bits))
	return err
}

// Write calls [WriteWith] with [os.Stdout] and [os.Stderr].
func Write(obj any) error {
	return WriteWith(os.Stdout, os.Stderr, obj)
}
