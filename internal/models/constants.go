package models

const (
	// matches generated filenames like "LincolnHandbook2025HighSchoolEnglish1755706408612_8FBfTt"
	HandbookNameRegex = `(?i)LincolnHandbook\d{4}(Elementary|MiddleSchool|HighSchool)(English|Spanish)`

	NoResultsAnswer  = "I couldn't find any relevant information in the handbooks to answer your question."
	NoResponseAnswer = "No response from model."

	DefaultTopK = 5
)

var (
	GroundingInstruction = "You are a helpful assistant that answers questions about Lincoln school handbooks. " +
		"Answer ONLY using the provided context from the handbooks. " +
		"If the context doesn't contain enough information to answer, say so honestly. " +
		"Do not invent rules or policies that aren't in the provided context. " +
		"Be concise and cite which source number(s) you're using when relevant."

	PromptTemplate = `CONTEXT:
%s

QUESTION:
%s`
)
