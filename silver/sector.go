package silver

// SectorUnclassified is the explicit bucket for activity codes with no NAF
// division mapping. Codes never fall out of the dataset silently.
const SectorUnclassified = "Non classé"

// nafSections maps NAF rev. 2 divisions (the first two digits of the
// activity code) to coarse business-sector buckets.
var nafSections = map[string]string{
	"01": "Agriculture", "02": "Agriculture", "03": "Agriculture",
	"05": "Industries extractives", "06": "Industries extractives", "07": "Industries extractives",
	"08": "Industries extractives", "09": "Industries extractives",
	"10": "Industrie manufacturière", "11": "Industrie manufacturière", "12": "Industrie manufacturière",
	"13": "Industrie manufacturière", "14": "Industrie manufacturière", "15": "Industrie manufacturière",
	"16": "Industrie manufacturière", "17": "Industrie manufacturière", "18": "Industrie manufacturière",
	"19": "Industrie manufacturière", "20": "Industrie manufacturière", "21": "Industrie manufacturière",
	"22": "Industrie manufacturière", "23": "Industrie manufacturière", "24": "Industrie manufacturière",
	"25": "Industrie manufacturière", "26": "Industrie manufacturière", "27": "Industrie manufacturière",
	"28": "Industrie manufacturière", "29": "Industrie manufacturière", "30": "Industrie manufacturière",
	"31": "Industrie manufacturière", "32": "Industrie manufacturière", "33": "Industrie manufacturière",
	"35": "Énergie",
	"36": "Eau et déchets", "37": "Eau et déchets", "38": "Eau et déchets", "39": "Eau et déchets",
	"41": "Construction", "42": "Construction", "43": "Construction",
	"45": "Commerce", "46": "Commerce", "47": "Commerce",
	"49": "Transports", "50": "Transports", "51": "Transports", "52": "Transports", "53": "Transports",
	"55": "Hébergement-restauration", "56": "Hébergement-restauration",
	"58": "Information-communication", "59": "Information-communication", "60": "Information-communication",
	"61": "Information-communication", "62": "Information-communication", "63": "Information-communication",
	"64": "Finance-assurance", "65": "Finance-assurance", "66": "Finance-assurance",
	"68": "Immobilier",
	"69": "Activités spécialisées", "70": "Activités spécialisées", "71": "Activités spécialisées",
	"72": "Activités spécialisées", "73": "Activités spécialisées", "74": "Activités spécialisées",
	"75": "Activités spécialisées",
	"77": "Services administratifs", "78": "Services administratifs", "79": "Services administratifs",
	"80": "Services administratifs", "81": "Services administratifs", "82": "Services administratifs",
	"84": "Administration publique",
	"85": "Enseignement",
	"86": "Santé-action sociale", "87": "Santé-action sociale", "88": "Santé-action sociale",
	"90": "Arts et spectacles", "91": "Arts et spectacles", "92": "Arts et spectacles", "93": "Arts et spectacles",
	"94": "Autres services", "95": "Autres services", "96": "Autres services",
	"97": "Ménages", "98": "Ménages",
	"99": "Extra-territorial",
}

// SectorForCode maps an activity code (e.g. "62.01Z") to its sector bucket.
func SectorForCode(code string) string {
	if len(code) < 2 {
		return SectorUnclassified
	}
	if sector, ok := nafSections[code[:2]]; ok {
		return sector
	}
	return SectorUnclassified
}
