package domain

import "sort"

// Supported passage metadata fields. Filters may only constrain these names.
const (
	FieldDataType          = "data_type"
	FieldCategory          = "category"
	FieldCountry           = "country"
	FieldRegulationType    = "regulation_type"
	FieldStatus            = "status"
	FieldSource            = "source"
	FieldLawName           = "law_name"
	FieldRegulationSubtype = "regulation_subtype"
	FieldHSCode            = "hs_code"
	FieldArticle           = "article"
)

// fieldSpecificity ranks supported fields from coarsest (low) to most
// specific (high). Progressive relaxation drops fields from the high end.
var fieldSpecificity = map[string]int{
	FieldDataType:          1,
	FieldCategory:          2,
	FieldCountry:           3,
	FieldRegulationType:    4,
	FieldStatus:            5,
	FieldSource:            6,
	FieldLawName:           7,
	FieldRegulationSubtype: 8,
	FieldHSCode:            9,
	FieldArticle:           10,
}

func IsSupportedFilterField(name string) bool {
	_, ok := fieldSpecificity[name]
	return ok
}

// MetadataFilter is a conjunction of equality constraints over supported
// fields. The empty filter is valid and matches everything.
type MetadataFilter map[string]string

// NewMetadataFilter keeps supported non-empty constraints and reports the
// names it dropped so callers can log them. Unsupported names never fail.
func NewMetadataFilter(raw map[string]string) (MetadataFilter, []string) {
	f := MetadataFilter{}
	var dropped []string
	for name, value := range raw {
		if value == "" {
			continue
		}
		if !IsSupportedFilterField(name) {
			dropped = append(dropped, name)
			continue
		}
		f[name] = value
	}
	sort.Strings(dropped)
	return f, dropped
}

func (f MetadataFilter) Clone() MetadataFilter {
	out := make(MetadataFilter, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Without returns a copy with one constraint removed.
func (f MetadataFilter) Without(field string) MetadataFilter {
	out := f.Clone()
	delete(out, field)
	return out
}

// FieldsBySpecificity returns the present field names ordered most specific
// first, so relaxation loops can drop them in a deterministic order.
func (f MetadataFilter) FieldsBySpecificity() []string {
	fields := make([]string, 0, len(f))
	for name := range f {
		fields = append(fields, name)
	}
	sort.Slice(fields, func(i, j int) bool {
		return fieldSpecificity[fields[i]] > fieldSpecificity[fields[j]]
	})
	return fields
}

// FillMissing copies constraints from other for fields f does not set.
// Used to merge context hints underneath classifier output.
func (f MetadataFilter) FillMissing(other MetadataFilter) MetadataFilter {
	out := f.Clone()
	for name, value := range other {
		if _, ok := out[name]; !ok && value != "" && IsSupportedFilterField(name) {
			out[name] = value
		}
	}
	return out
}
