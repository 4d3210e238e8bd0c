package api

const (
	endpointChats        = "/chats"            // GET
	endpointChatByID     = "/chat/%s"          // DELETE
	endpointConversation = "/conversations/%s" // GET, keyed by document id
	endpointQuery        = "/query"            // POST form: documentId, question
	endpointUploadStream = "/upload-stream"    // POST multipart: file
)

// Form field names. Older backends read doc_id, so queries send both.
const (
	fieldDocumentID       = "documentId"
	fieldLegacyDocumentID = "doc_id"
	fieldQuestion         = "question"
	fieldFile             = "file"
)
