// Package chat drives the lead-capture conversation and hands off to the
// knowledge engine once the lead is captured.
package chat

// Conversation states. The lead-capture flow is strictly linear; only
// KNOW_MORE branches, into the knowledge sink or the end state.
const (
	StateInitial        = "INITIAL"
	StateParentType     = "PARENT_TYPE"
	StateSchoolType     = "SCHOOL_TYPE"
	StateCollectName    = "COLLECT_NAME"
	StateCollectMobile  = "COLLECT_MOBILE"
	StateKnowMore       = "KNOW_MORE"
	StateKnowledgeQuery = "KNOWLEDGE_QUERY"
	StateEnd            = "END"
)

// Collected data keys.
const (
	keyParentType = "parent_type"
	keySchoolType = "school_type"
	keyName       = "name"
	keyMobile     = "mobile"
)

// Option labels offered to the user.
var (
	parentTypeOptions = []string{"New Parent", "Existing Parent"}
	schoolTypeOptions = []string{"Day", "Boarding"}
	yesNoOptions      = []string{"Yes", "No"}
)

const (
	greeting = "Hello! Welcome to our school. I'm here to help you with any questions. " +
		"May I know if you are a new parent or an existing parent?"
	askSchoolType = "Thank you! Are you interested in our Day school or Boarding school?"
	askName       = "Great choice! May I know your name, please?"
	askMobile     = "Could you share your mobile number so our team can reach you?"
	askKnowMore   = "Would you like to know more about our school?"
	knowledgeIntro = "Wonderful! Ask me anything about the school and I'll do my best to help. " +
		"You can ask about admissions, fees, facilities, or anything else."

	invalidOptionReply = "Sorry, I didn't catch that. Please choose one of the options."
	invalidNameReply   = "That doesn't look like a name. Could you please tell me your name?"
	invalidMobileReply = "That doesn't look like a valid mobile number. " +
		"Please share a number with at least 10 digits."
	conversationOverReply = "Our conversation is complete. Thank you again! " +
		"Send \"reset\" or start a new chat if you'd like to begin over."
)
