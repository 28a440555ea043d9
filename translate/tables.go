package translate

import (
	"regexp"

	"golang.org/x/text/language"
)

// Patterns shared by every table, in match order.
var (
	objectNotFound   = regexp.MustCompile(`(?i)object '([^']*)' not found`)
	unexpectedSyntax = regexp.MustCompile(`(?i)unexpected (symbol|string constant|numeric constant|end of input|input|'[^']*')`)
	errorInPrefix    = regexp.MustCompile(`(?i)error in (.+?) ?: `)
	functionNotFound = regexp.MustCompile(`(?i)could not find function "([^"]*)"`)
	zeroLength       = regexp.MustCompile(`(?i)argument (?:is )?of length (?:zero|0)`)
	missingValue     = regexp.MustCompile(`(?i)missing value where TRUE/FALSE needed`)
	invalidArgument  = regexp.MustCompile(`(?i)invalid argument to (unary|binary) operator`)
	wrongDimensions  = regexp.MustCompile(`(?i)incorrect number of dimensions`)
)

var english = Table{
	Tag: language.English,
	Rules: []Rule{
		{objectNotFound, "variable '${1}' does not exist"},
		{unexpectedSyntax, "syntax error near ${1}"},
		{errorInPrefix, "problem in ${1}: "},
		{functionNotFound, "function '${1}' does not exist"},
		{zeroLength, "an argument is empty (length zero)"},
		{missingValue, "a missing value (NA) was used where TRUE or FALSE was expected"},
		{invalidArgument, "a value of the wrong type was given to a ${1} operator"},
		{wrongDimensions, "wrong number of dimensions for this object"},
	},
	Fallback: "an error occurred while running the code",
}

var french = Table{
	Tag: language.French,
	Rules: []Rule{
		{objectNotFound, "la variable '${1}' n'existe pas"},
		{unexpectedSyntax, "erreur de syntaxe près de ${1}"},
		{errorInPrefix, "problème dans ${1} : "},
		{functionNotFound, "la fonction '${1}' n'existe pas"},
		{zeroLength, "un argument est vide (longueur nulle)"},
		{missingValue, "une valeur manquante (NA) est utilisée là où TRUE ou FALSE est attendu"},
		{invalidArgument, "une valeur du mauvais type est donnée à un opérateur ${1}"},
		{wrongDimensions, "nombre de dimensions incorrect pour cet objet"},
	},
	Fallback: "une erreur s'est produite lors de l'exécution du code",
}
