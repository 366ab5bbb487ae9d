package socket

// Room commands sent by the client.
const (
	EventChatJoin   = "chat:join"
	EventChatLeave  = "chat:leave"
	EventEventJoin  = "event:join"
	EventEventLeave = "event:leave"
)

// Push events emitted by the server.
const (
	EventNewMessage         = "chat:newMessage"
	EventTyping             = "chat:typing"
	EventConversationUpdate = "chat:conversationUpdate"
	EventMessageRead        = "chat:messageRead"
	EventUserJoined         = "event:userJoined"
	EventNewMatch           = "match:new"
)
