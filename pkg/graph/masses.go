package graph

// Mass classes predicted per node.
const (
	MassOther = iota
	MassElectron
	MassMuon
	MassPion
	MassKaon
	MassProton
	MassPhoton
)

// MassClassifier maps a raw Monte-Carlo particle code to a mass class.
type MassClassifier interface {
	Class(pdg int) int
}

// PDGMassClassifier maps |pdg| through a lookup table. Codes missing from
// the table map to MassOther.
type PDGMassClassifier map[int]int

// DefaultMassClassifier covers the final-state particle species.
var DefaultMassClassifier = PDGMassClassifier{
	11:   MassElectron,
	13:   MassMuon,
	211:  MassPion,
	321:  MassKaon,
	2212: MassProton,
	22:   MassPhoton,
}

func (m PDGMassClassifier) Class(pdg int) int {
	if pdg < 0 {
		pdg = -pdg
	}
	if c, ok := m[pdg]; ok {
		return c
	}
	return MassOther
}
