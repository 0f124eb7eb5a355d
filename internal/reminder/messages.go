package reminder

// Title heads every reminder.
const Title = "glimm"

// Messages are the reminder bodies, one picked at random per reminder.
var Messages = []string{
	"What's happening right now?",
	"Capture this moment!",
	"What are you up to?",
	"Time to save a memory",
	"What does your world look like?",
	"Pause and capture",
	"Document this moment",
	"What's around you?",
}

// Message picks a body using src; nil means DefaultSource.
func Message(src Source) string {
	if src == nil {
		src = DefaultSource
	}
	return Messages[src.IntN(len(Messages))]
}
