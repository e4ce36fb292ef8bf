package redis

import "fmt"

// All keys of one room share the {code} hash tag so a script touching them
// runs on a single cluster slot.

func roomKey(code string) string {
	return fmt.Sprintf("room:{%s}", code)
}

func rosterKey(code string) string {
	return roomKey(code) + ":roster"
}

// Scripts that walk the roster rebuild member keys from the room key, so the
// layout below must stay in sync with scripts.go.
func memberKey(code, userID string) string {
	return roomKey(code) + ":member:" + userID
}

func answersKey(code, userID string) string {
	return roomKey(code) + ":answers:" + userID
}

func answerLogKey(code, userID string) string {
	return roomKey(code) + ":answerlog:" + userID
}

func topicKey(code string) string {
	return roomKey(code) + ":events"
}

const publicRoomsKey = "rooms:public"

func quizKey(quizID string) string {
	return "quiz:" + quizID
}
