package language

import "strings"

type entry struct {
	code2   string
	code3   []string
	display string
}

var languages = []entry{
	{"en", []string{"eng"}, "English"},
	{"es", []string{"spa"}, "Spanish"},
	{"fr", []string{"fra", "fre"}, "French"},
	{"de", []string{"deu", "ger"}, "German"},
	{"it", []string{"ita"}, "Italian"},
	{"pt", []string{"por"}, "Portuguese"},
	{"ja", []string{"jpn"}, "Japanese"},
	{"ko", []string{"kor"}, "Korean"},
	{"zh", []string{"zho", "chi"}, "Chinese"},
	{"ru", []string{"rus"}, "Russian"},
	{"uk", []string{"ukr"}, "Ukrainian"},
	{"ar", []string{"ara"}, "Arabic"},
	{"hi", []string{"hin"}, "Hindi"},
	{"nl", []string{"nld", "dut"}, "Dutch"},
	{"pl", []string{"pol"}, "Polish"},
	{"sv", []string{"swe"}, "Swedish"},
	{"tr", []string{"tur"}, "Turkish"},
}

var index = func() map[string]*entry {
	m := make(map[string]*entry, len(languages)*4)
	for i := range languages {
		e := &languages[i]
		m[e.code2] = e
		m[strings.ToLower(e.display)] = e
		for _, c := range e.code3 {
			m[c] = e
		}
	}
	return m
}()

// Normalize maps a language setting to ISO 639-1. It accepts two- and
// three-letter codes, English names, and region-tagged forms like "en-US".
// Empty and "auto" mean auto-detect and return "". Unrecognized values also
// return "" so the backend detects the language itself.
func Normalize(value string) string {
	code := strings.ToLower(strings.TrimSpace(value))
	if code == "" || code == "auto" {
		return ""
	}
	if e, ok := index[code]; ok {
		return e.code2
	}
	if i := strings.IndexAny(code, "-_"); i > 0 {
		return Normalize(code[:i])
	}
	if len(code) == 2 {
		return code
	}
	return ""
}

// DisplayName returns the English name for a code, or the code uppercased
// when unknown. Empty input yields "Auto-detect".
func DisplayName(value string) string {
	code := Normalize(value)
	if code == "" {
		if strings.TrimSpace(value) == "" || strings.EqualFold(strings.TrimSpace(value), "auto") {
			return "Auto-detect"
		}
		return strings.ToUpper(strings.TrimSpace(value))
	}
	if e, ok := index[code]; ok {
		return e.display
	}
	return strings.ToUpper(code)
}
