package devserver

import "github.com/quizlink/quizlink/internal/state"

// questionDeck is the canned deck the development server deals from. Real
// question selection lives in the production game server.
func questionDeck() []state.Question {
	return []state.Question{
		{ID: "q1", Prompt: "What is the capital of France?", Category: "Geography", Hint: "City of Light"},
		{ID: "q2", Prompt: "Which planet is known as the Red Planet?", Category: "Science", Hint: "Fourth from the sun"},
		{ID: "q3", Prompt: "Who painted the Mona Lisa?", Category: "Art", Hint: "Renaissance polymath"},
		{ID: "q4", Prompt: "What is the largest ocean on Earth?", Category: "Geography", Hint: "Named for calm waters"},
		{ID: "q5", Prompt: "In which year did the Berlin Wall fall?", Category: "History", Hint: "Late eighties"},
		{ID: "q6", Prompt: "What element has the chemical symbol Au?", Category: "Science", Hint: "Olympic first place"},
		{ID: "q7", Prompt: "Which composer wrote the Ninth Symphony while deaf?", Category: "Music", Hint: "Ode to Joy"},
		{ID: "q8", Prompt: "What is the longest river in South America?", Category: "Geography", Hint: "Shares a name with a rainforest"},
		{ID: "q9", Prompt: "Who wrote 'One Hundred Years of Solitude'?", Category: "Literature", Hint: "Colombian Nobel laureate"},
		{ID: "q10", Prompt: "How many sides does a dodecahedron have?", Category: "Math", Hint: "A dozen"},
	}
}
