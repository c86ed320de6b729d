package fallback

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/kyleking/sqlpilot/internal/types"
)

// intentKeywords are whole-word verbs per statement type in English, Spanish,
// French, German and Portuguese
var intentKeywords = map[types.QueryType][]string{
	types.QueryTypeSelect: {
		"show", "list", "get", "find", "display", "fetch", "select", "view", "retrieve", "search", "count", "see",
		"mostrar", "muestra", "muestrame", "listar", "lista", "buscar", "busca", "obtener", "ver", "consultar",
		"afficher", "affiche", "lister", "montrer", "montre", "trouver", "trouve", "chercher", "voir",
		"zeige", "zeigen", "zeig", "auflisten", "finde", "finden", "suche", "suchen", "anzeigen",
		"exibir", "obter", "encontrar", "listar", "pesquisar",
	},
	types.QueryTypeInsert: {
		"add", "insert", "create", "register",
		"agregar", "agrega", "añadir", "añade", "insertar", "inserta", "crear", "crea",
		"ajouter", "ajoute", "insérer", "insère", "créer", "crée",
		"hinzufügen", "füge", "einfügen", "erstellen", "erstelle", "anlegen", "lege",
		"adicionar", "adiciona", "inserir", "insira", "criar", "crie", "cadastrar",
	},
	types.QueryTypeUpdate: {
		"update", "change", "modify", "edit", "rename", "set",
		"actualizar", "actualiza", "cambiar", "cambia", "modificar", "modifica", "editar", "edita",
		"modifier", "modifie", "changer", "change", "éditer", "renommer",
		"aktualisieren", "aktualisiere", "ändern", "ändere", "bearbeiten", "bearbeite", "umbenennen",
		"atualizar", "atualiza", "alterar", "altere", "mudar", "mude",
	},
	types.QueryTypeDelete: {
		"delete", "remove", "erase", "destroy", "purge",
		"eliminar", "elimina", "borrar", "borra", "quitar", "quita",
		"supprimer", "supprime", "effacer", "efface", "retirer", "retire",
		"löschen", "lösche", "entfernen", "entferne",
		"excluir", "exclua", "apagar", "apague", "remover", "remova", "deletar",
	},
}

// allKeywords ask for an unbounded result set
var allKeywords = []string{
	"all", "every", "everything",
	"todos", "todas", "todo",
	"tous", "toutes", "tout",
	"alle", "allen", "sämtliche",
	"tudo",
}

// recencyKeywords ask for newest rows first
var recencyKeywords = []string{
	"latest", "newest", "recent", "recently", "last",
	"último", "últimos", "última", "últimas", "reciente", "recientes",
	"dernier", "derniers", "dernière", "dernières", "récent", "récents", "récente", "récentes",
	"neueste", "neuesten", "letzte", "letzten", "aktuellste",
	"recente", "recentes", "mais novos",
}

// fold applies full Unicode case folding. A Caser is stateful, so each call
// gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

// wordSet is the folded whole-word view of a prompt
type wordSet struct {
	words  map[string]bool
	folded string
}

func newWordSet(prompt string) wordSet {
	folded := fold(prompt)
	words := make(map[string]bool)

	for _, w := range strings.FieldsFunc(folded, isWordBreak) {
		words[w] = true
	}

	return wordSet{words: words, folded: folded}
}

func isWordBreak(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
}

// has reports whether the prompt contains keyword as a whole word, or as a
// whole phrase when keyword has spaces
func (ws wordSet) has(keyword string) bool {
	keyword = fold(keyword)
	if !strings.Contains(keyword, " ") {
		return ws.words[keyword]
	}

	padded := " " + strings.Join(strings.FieldsFunc(ws.folded, isWordBreak), " ") + " "

	return strings.Contains(padded, " "+keyword+" ")
}

func (ws wordSet) any(keywords []string) bool {
	for _, k := range keywords {
		if ws.has(k) {
			return true
		}
	}

	return false
}

// ClassifyIntent picks the statement type a prompt asks for. Only one
// unambiguous non-select verb selects a write; anything else is a select.
func ClassifyIntent(prompt string) types.QueryType {
	return classify(newWordSet(prompt))
}

func classify(ws wordSet) types.QueryType {
	var writes []types.QueryType

	for _, qt := range []types.QueryType{types.QueryTypeInsert, types.QueryTypeUpdate, types.QueryTypeDelete} {
		if ws.any(intentKeywords[qt]) {
			writes = append(writes, qt)
		}
	}

	if len(writes) == 1 && !ws.any(intentKeywords[types.QueryTypeSelect]) {
		return writes[0]
	}

	return types.QueryTypeSelect
}
