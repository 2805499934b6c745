package form

import (
	"iter"

	"github.com/dchest/uniuri"
)

// Data is a single form field. For file parts Filename is set and Value holds the content.
type Data struct {
	Name     string
	Filename string
	Type     string
	Charset  string
	Value    string
}

// IsFile reports whether the field was sent as a file part.
func (d Data) IsFile() bool {
	return len(d.Filename) > 0
}

// Form is an ordered multimap of fields by their names.
type Form []Data

// Name returns the first field of the name.
func (f Form) Name(name string) (Data, bool) {
	for data := range f.Names(name) {
		return data, true
	}

	return Data{}, false
}

// Value returns the value of the first field of the name or an empty string.
func (f Form) Value(name string) string {
	data, _ := f.Name(name)
	return data.Value
}

// Names returns an iterator over all the fields of the name.
func (f Form) Names(name string) iter.Seq[Data] {
	return func(yield func(Data) bool) {
		for _, entry := range f {
			if entry.Name == name && !yield(entry) {
				break
			}
		}
	}
}

// Files returns an iterator over the file parts.
func (f Form) Files() iter.Seq[Data] {
	return func(yield func(Data) bool) {
		for _, entry := range f {
			if entry.IsFile() && !yield(entry) {
				break
			}
		}
	}
}

const boundaryLength = 30

// Boundary generates a random multipart boundary token.
func Boundary() string {
	return "----loom" + uniuri.NewLen(boundaryLength)
}
