package pipeline

import (
	"fmt"

	"exambank/internal/catalog"
	"exambank/internal/llm"
)

func versionPrompt(raw string) llm.Request {
	return llm.Request{
		System: "Extract the exam version from the following text formatted as NXY, " +
			"where N is the time of year (V for before july, K for august, and H " +
			"for after september), and XY is the year itself (24 for 2024, 19 for " +
			"2019, etc.).",
		User:   raw,
		Type:   llm.Text,
		MaxLen: 10,
	}
}

func subjectCodePrompt(raw, examples string) llm.Request {
	return llm.Request{
		System: "Extract the exam subject code from the following text. Respond with " +
			"nothing other than the subject codes. Respond with all subject " +
			"codes in the text separated by a comma. " +
			"E.g.: " + examples,
		User:   raw,
		Type:   llm.TextList,
		MaxLen: 200,
	}
}

func subjectNamePrompt(raw, examples string) llm.Request {
	return llm.Request{
		System: "Extract the exam subject name from the following text. Respond with " +
			"nothing other than the subject name. Respond with the full subject name. " +
			"E.g.: " + examples,
		User:   raw,
		Type:   llm.TextList,
		MaxLen: 200,
	}
}

func categoryPrompt(raw string, categories []string) llm.Request {
	return llm.Request{
		System: "Identify the main academic category of the subject from the following text. " +
			"Respond with nothing other than the single category name. The possible " +
			"categories are: " + catalog.EnumString(categories),
		User:   raw,
		Type:   llm.Text,
		MaxLen: 100,
	}
}

func sufficiencyPrompt(raw, category string) llm.Request {
	return llm.Request{
		System: fmt.Sprintf("Determine if the category %s is sufficient to define this exams "+
			"academic field or if a more specific topic is needed. Respond with "+
			"either 0 or 1, where 0: no, 1: yes. ", category),
		User:   raw,
		Type:   llm.Number,
		MaxLen: 2,
	}
}

func coreTopicPrompt(raw, category string) llm.Request {
	return llm.Request{
		System: fmt.Sprintf("The exam in the following text belongs to the academic category %s. "+
			"Name the core topic within that category the exam is about, in a few words. "+
			"Respond with nothing other than the topic name.", category),
		User:   raw,
		Type:   llm.Text,
		MaxLen: 50,
	}
}
