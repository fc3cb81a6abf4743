package types

// Answer is the one shape every inference reply is normalized into.
type Answer struct {
  Text                string                    `json:"text"`
  References          []Reference               `json:"references"`
}

type Reference struct {
  Page                int                       `json:"page"`
}

// ConversationMessage is a multi-turn entry sent to the inference backend.
type ConversationMessage struct {
  Role                string                    `json:"role"`
  Content             string                    `json:"content"`
}
