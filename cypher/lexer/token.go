package lexer

// TokenKind lists every token class the lexer can emit, following the
// teacher pack's `ItemX` naming used by google-badwolf/bql/lexer for its own
// graph query language.
type TokenKind int

const (
	ItemError TokenKind = iota
	ItemEOF

	ItemIdentifier
	ItemParameter // $name
	ItemNumber
	ItemString

	// Keywords
	ItemMatch
	ItemOptional
	ItemWhere
	ItemWith
	ItemReturn
	ItemUnwind
	ItemCall
	ItemAs
	ItemOrder
	ItemBy
	ItemAsc
	ItemDesc
	ItemSkip
	ItemLimit
	ItemDistinct
	ItemAnd
	ItemOr
	ItemNot
	ItemXor
	ItemIn
	ItemIs
	ItemNull
	ItemTrue
	ItemFalse
	ItemCase
	ItemWhen
	ItemThen
	ItemElse
	ItemEnd
	ItemExists
	ItemShortestPath
	ItemAllShortestPaths

	// Punctuation / operators
	ItemLParen
	ItemRParen
	ItemLBracket
	ItemRBracket
	ItemLBrace
	ItemRBrace
	ItemComma
	ItemColon
	ItemDot
	ItemDotDot
	ItemPipe
	ItemStar
	ItemPlus
	ItemMinus
	ItemSlash
	ItemPercent
	ItemCaret
	ItemEquals
	ItemNotEquals
	ItemLess
	ItemLessEq
	ItemGreater
	ItemGreaterEq
	ItemArrowRight // ->
	ItemArrowLeft  // <-
	ItemDash       // -
)

// Token is one lexeme with its source position (1-based line/column, 0-based
// byte offset), matching sql/cerrors.Position so parse errors can report
// exact locations.
type Token struct {
	Kind   TokenKind
	Text   string
	Offset int
	Line   int
	Column int
}

var keywords = map[string]TokenKind{
	"MATCH":            ItemMatch,
	"OPTIONAL":         ItemOptional,
	"WHERE":            ItemWhere,
	"WITH":             ItemWith,
	"RETURN":           ItemReturn,
	"UNWIND":           ItemUnwind,
	"CALL":             ItemCall,
	"AS":               ItemAs,
	"ORDER":            ItemOrder,
	"BY":               ItemBy,
	"ASC":              ItemAsc,
	"ASCENDING":        ItemAsc,
	"DESC":             ItemDesc,
	"DESCENDING":       ItemDesc,
	"SKIP":             ItemSkip,
	"LIMIT":            ItemLimit,
	"DISTINCT":         ItemDistinct,
	"AND":              ItemAnd,
	"OR":               ItemOr,
	"NOT":              ItemNot,
	"XOR":              ItemXor,
	"IN":               ItemIn,
	"IS":               ItemIs,
	"NULL":             ItemNull,
	"TRUE":             ItemTrue,
	"FALSE":            ItemFalse,
	"CASE":             ItemCase,
	"WHEN":             ItemWhen,
	"THEN":             ItemThen,
	"ELSE":             ItemElse,
	"END":              ItemEnd,
	"EXISTS":           ItemExists,
	"SHORTESTPATH":     ItemShortestPath,
	"ALLSHORTESTPATHS": ItemAllShortestPaths,
}
