package xlsxraw

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// contactSheetPart is the only worksheet the phone extractor reads.
const contactSheetPart = "xl/worksheets/sheet1.xml"

// A contact row holds the name in its first cell as an inline string,
// followed by an unused cell, a skipped cell, the landline and the mobile.
var (
	rowOpenRe = regexp.MustCompile(`<row(?:\s[^>]*)?>`)

	contactRowRe = regexp.MustCompile(`(?s)<row(?:\s[^>]*)?>.*?` +
		`<c[^>]*><is><t>(.*?)</t></is></c>.*?` +
		`<c[^>]*>(?:<is><t>(.*?)</t></is>|<v>(.*?)</v>)</c>.*?` +
		`<c[^>]*>(?:<is><t>.*?</t></is>|<v>.*?</v>)</c>.*?` +
		`<c[^>]*>(?:<is><t>(.*?)</t></is>|<v>(.*?)</v>)</c>.*?` +
		`<c[^>]*>(?:<is><t>(.*?)</t></is>|<v>(.*?)</v>)</c>`)

	inlineNameRe = regexp.MustCompile(`<c[^>]*><is><t>(.*?)</t></is></c>`)

	phoneRunRe = regexp.MustCompile(strings.Repeat(`<c[^>]*>(?:<is><t>(.*?)</t></is>|<v>(.*?)</v>)</c>.*?`, 3) +
		`<c[^>]*>(?:<is><t>(.*?)</t></is>|<v>(.*?)</v>)</c>`)
)

// ExtractPhones builds a lookup from normalized contact name (trimmed,
// lower-cased) to phone number using the first worksheet of path.
//
// Rows are matched against the fixed contact layout first; the mobile number
// wins over the landline. Only when that yields nothing is a looser scan
// tried, which takes the first non-empty value among the four cells after
// the name. Later rows overwrite earlier rows with the same name.
//
// Failures never escape: they are logged and an empty map is returned.
func (x *Extractor) ExtractPhones(path string) map[string]string {
	phones, err := x.extractPhones(path)
	if err != nil {
		x.logger.Error("phone extraction failed", "path", path, "error", err)
		return map[string]string{}
	}
	return phones
}

func (x *Extractor) extractPhones(path string) (phones map[string]string, err error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	span := x.monitor.Start("extract_phones", "path", path)
	defer span.Stop(&err)

	x.logger.Info("extracting phones", "path", path)

	defer x.cleanup()
	if err := x.unpack(path); err != nil {
		return nil, err
	}

	content, ok, err := x.readPart(contactSheetPart)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", errPartMissing, contactSheetPart)
	}

	phones = matchContactRows(content)
	if len(phones) == 0 {
		x.logger.Warn("no contact rows matched, trying loose scan", "path", path)
		phones = scanContactRows(content)
	}

	x.logger.Info("phones extracted", "path", path, "count", len(phones))
	return phones, nil
}

func matchContactRows(content string) map[string]string {
	phones := make(map[string]string)
	for _, m := range contactRowRe.FindAllStringSubmatch(content, -1) {
		name := normalizeName(m[1])
		landline := firstNonEmpty(m[4], m[5])
		mobile := firstNonEmpty(m[6], m[7])

		phone := firstNonEmpty(mobile, landline)
		if name == "" || phone == "" {
			continue
		}
		phones[name] = html.UnescapeString(phone)
	}
	return phones
}

func scanContactRows(content string) map[string]string {
	phones := make(map[string]string)
	fragments := rowOpenRe.Split(content, -1)
	if len(fragments) < 2 {
		return phones
	}

	for _, frag := range fragments[1:] {
		loc := inlineNameRe.FindStringSubmatchIndex(frag)
		if loc == nil {
			continue
		}
		name := normalizeName(frag[loc[2]:loc[3]])
		if name == "" {
			continue
		}

		m := phoneRunRe.FindStringSubmatch(frag[loc[1]:])
		if m == nil {
			continue
		}
		phone := firstNonEmpty(m[1:]...)
		if phone == "" {
			continue
		}
		phones[name] = html.UnescapeString(phone)
	}
	return phones
}

// NormalizeName is the key used for contact lookups.
func NormalizeName(s string) string { return normalizeName(s) }

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(html.UnescapeString(s)))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
