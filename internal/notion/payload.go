package notion

type CreatePageRequest struct {
	Parent     Parent              `json:"parent"`
	Properties map[string]Property `json:"properties"`
}

type Parent struct {
	DatabaseID string `json:"database_id"`
}

// Property holds exactly one of the supported Notion property value shapes.
type Property struct {
	Title       []RichText    `json:"title,omitempty"`
	MultiSelect []SelectValue `json:"multi_select,omitempty"`
}

type RichText struct {
	Text TextContent `json:"text"`
}

type TextContent struct {
	Content string `json:"content"`
}

type SelectValue struct {
	Name string `json:"name"`
}

type ErrorResponse struct {
	Object  string `json:"object"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewCreatePageRequest(databaseID, titleProperty, title, tagProperty, tag string) CreatePageRequest {
	return CreatePageRequest{
		Parent: Parent{DatabaseID: databaseID},
		Properties: map[string]Property{
			titleProperty: {Title: []RichText{{Text: TextContent{Content: title}}}},
			tagProperty:   {MultiSelect: []SelectValue{{Name: tag}}},
		},
	}
}
