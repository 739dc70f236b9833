package flashcards

// Intent names the kind of study artifact a request asks for. Only flashcard
// decks are produced today; the router is the seam where quiz or outline
// generators would plug in.
type Intent string

const IntentFlashcards Intent = "flashcards"

// RouteIntent classifies a free-text study request.
func RouteIntent(request string) Intent {
	_ = request
	return IntentFlashcards
}
