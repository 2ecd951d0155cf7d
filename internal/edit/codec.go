package edit

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding so the same committed op always
// encodes to the same bytes.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("edit: CBOR encoder initialization failed: " + err.Error())
	}
}

// wireOp is the flattened on-the-wire form of a committed op.
type wireOp struct {
	Seq       uint64 `cbor:"seq"`
	Kind      Kind   `cbor:"kind"`
	Path      string `cbor:"path,omitempty"`
	NewPath   string `cbor:"new_path,omitempty"`
	Content   string `cbor:"content,omitempty"`
	OldText   string `cbor:"old_text,omitempty"`
	NewText   string `cbor:"new_text,omitempty"`
	Recursive bool   `cbor:"recursive,omitempty"`
}

func toWire(c Committed) (wireOp, error) {
	w := wireOp{Seq: c.Seq, Kind: c.Op.Kind()}
	switch o := c.Op.(type) {
	case CreateFile:
		w.Path, w.Content = o.Path, o.Content
	case WriteFile:
		w.Path, w.Content = o.Path, o.Content
	case ReplaceText:
		w.Path, w.OldText, w.NewText = o.Path, o.Old, o.New
	case DeleteEntry:
		w.Path, w.Recursive = o.Path, o.Recursive
	case RenameEntry:
		w.Path, w.NewPath = o.OldPath, o.NewPath
	case CreateDirectory:
		w.Path = o.Path
	default:
		return wireOp{}, fmt.Errorf("%w: cannot encode %s", ErrUnknownAction, c.Op.Kind())
	}
	return w, nil
}

func fromWire(w wireOp) (Committed, error) {
	var op Op
	switch w.Kind {
	case KindCreateFile:
		op = CreateFile{Path: w.Path, Content: w.Content}
	case KindWriteFile:
		op = WriteFile{Path: w.Path, Content: w.Content}
	case KindReplaceText:
		op = ReplaceText{Path: w.Path, Old: w.OldText, New: w.NewText}
	case KindDeleteEntry:
		op = DeleteEntry{Path: w.Path, Recursive: w.Recursive}
	case KindRenameEntry:
		op = RenameEntry{OldPath: w.Path, NewPath: w.NewPath}
	case KindCreateDirectory:
		op = CreateDirectory{Path: w.Path}
	default:
		return Committed{}, fmt.Errorf("%w: wire kind %q", ErrUnknownAction, w.Kind)
	}
	return Committed{Seq: w.Seq, Op: op}, nil
}

// Marshal encodes a committed op.
func Marshal(c Committed) ([]byte, error) {
	w, err := toWire(c)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(w)
}

// Unmarshal decodes a committed op, rejecting unknown kinds.
func Unmarshal(data []byte) (Committed, error) {
	var w wireOp
	if err := cbor.Unmarshal(data, &w); err != nil {
		return Committed{}, fmt.Errorf("decode op: %w", err)
	}
	return fromWire(w)
}

// Encoder writes a stream of committed ops.
type Encoder struct {
	enc *cbor.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: encMode.NewEncoder(w)}
}

// Encode writes c to the stream.
func (e *Encoder) Encode(c Committed) error {
	w, err := toWire(c)
	if err != nil {
		return err
	}
	return e.enc.Encode(w)
}

// Decoder reads a stream of committed ops.
type Decoder struct {
	dec *cbor.Decoder
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: cbor.NewDecoder(r)}
}

// Decode returns the next op, or io.EOF at the end of the stream.
func (d *Decoder) Decode() (Committed, error) {
	var w wireOp
	if err := d.dec.Decode(&w); err != nil {
		return Committed{}, err
	}
	return fromWire(w)
}
