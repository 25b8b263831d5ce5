package extract

import "strings"

// Keyword vocabularies used to recognize entity attributes in free text.
// Matching is case-insensitive substring containment.

var specialtyVocab = []string{
	"Cardiology", "Cardiac Surgery", "Oncology", "Neurology", "Neurosurgery",
	"Orthopedics", "Gastroenterology", "Nephrology", "Urology", "Pediatrics",
	"Gynecology", "Obstetrics", "Dermatology", "Ophthalmology", "ENT",
	"Pulmonology", "Rheumatology", "Endocrinology", "Hematology", "Psychiatry",
	"Radiology", "Transplant", "Bariatric Surgery", "Plastic Surgery",
	"Spine Surgery", "Dental", "IVF", "Fertility",
}

var serviceVocab = []string{
	"Emergency", "Ambulance", "ICU", "Pharmacy", "Laboratory", "Blood Bank",
	"Dialysis", "Physiotherapy", "Rehabilitation", "Telemedicine",
	"Health Checkup", "Vaccination", "Day Care", "Home Care",
}

var facilityVocab = []string{
	"MRI", "CT Scan", "PET Scan", "X-Ray", "Ultrasound", "Cath Lab",
	"Operation Theatre", "Robotic Surgery", "Linear Accelerator",
	"Gamma Knife", "CyberKnife", "NICU", "Private Rooms", "Cafeteria",
	"Parking", "Wi-Fi",
}

var accreditationVocab = []string{
	"JCI", "NABH", "NABL", "ISO 9001", "ISO 14001", "CAP", "AACI",
}

// qualificationVocab recognizes medical degree tokens in a doctor's
// credential line. Matching is whole-token and case-insensitive.
var qualificationVocab = []string{
	"MBBS", "MD", "MS", "DM", "MCh", "DNB", "FRCS", "MRCP", "FRCP",
	"FACS", "PhD", "BDS", "MDS", "DGO", "DCH", "FICS",
}

// matchVocab returns the vocabulary entries present in text, preserving
// vocabulary order. Short single-word terms match only as whole words so
// "ENT" stays out of "Replacement".
func matchVocab(text string, vocab []string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, term := range vocab {
		lowerTerm := strings.ToLower(term)
		if len(lowerTerm) <= 4 && !strings.Contains(lowerTerm, " ") {
			if containsWord(lower, lowerTerm) {
				found = append(found, term)
			}
			continue
		}
		if strings.Contains(lower, lowerTerm) {
			found = append(found, term)
		}
	}
	return found
}

func containsWord(text, word string) bool {
	offset := 0
	for {
		idx := strings.Index(text[offset:], word)
		if idx < 0 {
			return false
		}
		idx += offset
		end := idx + len(word)
		startsClean := idx == 0 || !isWordChar(text[idx-1])
		endsClean := end >= len(text) || !isWordChar(text[end])
		if startsClean && endsClean {
			return true
		}
		offset = idx + 1
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// matchTokens returns the vocabulary entries present in text as standalone
// tokens, for short credential strings where substring matching is too loose
// ("MD" inside "MDS").
func matchTokens(text string, vocab []string) []string {
	tokens := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || r == '(' || r == ')' || r == ' ' || r == '\n' || r == '\t'
	}) {
		tokens[strings.ToUpper(strings.TrimSpace(tok))] = struct{}{}
	}
	var found []string
	for _, term := range vocab {
		if _, ok := tokens[strings.ToUpper(term)]; ok {
			found = append(found, term)
		}
	}
	return found
}
