package ai

import "github.com/skewballfox/papermill/core"

// RelationTypes defines the relation vocabulary offered to relation extractors.
// Extractors may emit other types; they are normalized but kept.
var RelationTypes = []core.RelationType{
	core.RelationCites,
	core.RelationExtends,
	core.RelationContradicts,
	core.RelationUses,
	core.RelationPartOf,
	core.RelationRelatedTo,
	"improves",
	"evaluates",
	"introduces",
	"compares_with",
}
