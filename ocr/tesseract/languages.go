package tesseract

// Recognition hints travel through the pipeline as BCP-47 tags; tesseract
// wants tessdata codes. Both mappings pass unknown values through unchanged
// so native codes on either side keep working.

var tessByTag = map[string]string{
	"en":      "eng",
	"en-US":   "eng",
	"en-GB":   "eng",
	"zh-Hans": "chi_sim",
	"zh-CN":   "chi_sim",
	"zh-Hant": "chi_tra",
	"zh-TW":   "chi_tra",
	"ja":      "jpn",
	"ja-JP":   "jpn",
	"ko":      "kor",
	"ko-KR":   "kor",
	"de":      "deu",
	"de-DE":   "deu",
	"fr":      "fra",
	"fr-FR":   "fra",
	"es":      "spa",
	"es-ES":   "spa",
	"it":      "ita",
	"it-IT":   "ita",
	"pt":      "por",
	"pt-BR":   "por",
	"ru":      "rus",
	"ru-RU":   "rus",
}

var tagByTess = map[string]string{
	"eng":     "en-US",
	"chi_sim": "zh-Hans",
	"chi_tra": "zh-Hant",
	"jpn":     "ja-JP",
	"kor":     "ko-KR",
	"deu":     "de-DE",
	"fra":     "fr-FR",
	"spa":     "es-ES",
	"ita":     "it-IT",
	"por":     "pt-BR",
	"rus":     "ru-RU",
}

// FromBCP47 maps one BCP-47 tag onto its tessdata code.
func FromBCP47(tag string) string {
	if code, ok := tessByTag[tag]; ok {
		return code
	}
	return tag
}

// ToBCP47 maps one tessdata code onto a BCP-47 tag (eng becomes en-US).
func ToBCP47(code string) string {
	if tag, ok := tagByTess[code]; ok {
		return tag
	}
	return code
}

// Codes maps a list of BCP-47 tags onto deduplicated tessdata codes, keeping
// first-seen order. Tags that collapse onto the same traineddata (en and
// en-US) appear once.
func Codes(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		code := FromBCP47(t)
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}
