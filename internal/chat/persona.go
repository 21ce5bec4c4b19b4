package chat

// Persona tunes the assistant for one age group.
type Persona struct {
	// AgeGroup is the key the session is started with, e.g. "Ages 8-12".
	AgeGroup string

	// Name is shown as the assistant's display name.
	Name string

	// SystemPrompt is prepended to every generation prompt. May be empty.
	SystemPrompt string

	// Greeting is the first assistant message of a session.
	Greeting string
}

// DefaultPersona is used for age groups without a persona.
var DefaultPersona = Persona{
	Name:     "AI Tutor",
	Greeting: "Hello! How can I help you today?",
}

var builtinPersonas = []Persona{
	{
		AgeGroup: "Ages 4-7",
		Name:     "Buddy the Storyteller",
		SystemPrompt: "You are a kind and gentle storyteller for young children (ages 4-7). \n" +
			"Use very simple words. Tell short, happy stories with clear morals. \n" +
			"Always be encouraging and positive. Make learning fun through imaginative tales.\n" +
			"Keep responses brief (2-3 sentences max). End with a friendly question.",
		Greeting: "Hi there, little friend! 🌟 I love telling magical stories that teach us wonderful things. What would you like to hear a story about today?",
	},
	{
		AgeGroup: "Ages 8-12",
		Name:     "Explorer Max",
		SystemPrompt: "You are an exciting adventure guide and explorer for curious minds (ages 8-12).\n" +
			"Turn every topic into a mystery, riddle, or adventure. Use engaging language and exciting metaphors.\n" +
			"Encourage curiosity and problem-solving. Make them think like detectives and scientists.\n" +
			"Be enthusiastic and use emojis occasionally. End with a challenging question.",
		Greeting: "Hey Explorer! 🔍✨ Ready for an adventure? I turn boring topics into exciting mysteries and cool discoveries. What do you want to investigate today?",
	},
	{
		AgeGroup: "Ages 13-16+",
		Name:     "Nova the Mentor",
		SystemPrompt: "You are a smart and witty mentor for teenagers (ages 13-16+).\n" +
			"Help with complex school topics (CBSE, ICSE, SAT prep). Explain clearly with real-world examples.\n" +
			"Foster critical thinking and problem-solving skills. Be relatable and occasionally witty.\n" +
			"Challenge them with thought-provoking questions. Prepare them for competitive exams.",
		Greeting: "Hey there! 🎓 I'm your study buddy and problem-solving partner. Whether it's math, science, or life skills - I've got your back. What's on your mind?",
	},
}

// PersonaBook maps age groups to personas. It is immutable once built and
// safe for concurrent use.
type PersonaBook struct {
	byGroup map[string]Persona
	order   []string
}

// NewPersonaBook returns the built-in personas with overrides applied.
// An override replaces the built-in persona of the same age group; empty
// override fields keep the built-in value. Unknown age groups are added.
func NewPersonaBook(overrides ...Persona) *PersonaBook {
	b := &PersonaBook{byGroup: make(map[string]Persona)}
	for _, p := range builtinPersonas {
		b.put(p)
	}
	for _, o := range overrides {
		base, ok := b.byGroup[o.AgeGroup]
		if !ok {
			base = Persona{AgeGroup: o.AgeGroup, Greeting: DefaultPersona.Greeting}
		}
		if o.Name != "" {
			base.Name = o.Name
		}
		if o.SystemPrompt != "" {
			base.SystemPrompt = o.SystemPrompt
		}
		if o.Greeting != "" {
			base.Greeting = o.Greeting
		}
		b.put(base)
	}
	return b
}

func (b *PersonaBook) put(p Persona) {
	if _, ok := b.byGroup[p.AgeGroup]; !ok {
		b.order = append(b.order, p.AgeGroup)
	}
	b.byGroup[p.AgeGroup] = p
}

// Lookup returns the persona for ageGroup, or DefaultPersona with AgeGroup
// set when there is none.
func (b *PersonaBook) Lookup(ageGroup string) Persona {
	if b != nil {
		if p, ok := b.byGroup[ageGroup]; ok {
			return p
		}
	}
	p := DefaultPersona
	p.AgeGroup = ageGroup
	return p
}

// AgeGroups lists the known age groups, built-ins first.
func (b *PersonaBook) AgeGroups() []string {
	if b == nil {
		return nil
	}
	return append([]string(nil), b.order...)
}
