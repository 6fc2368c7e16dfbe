package capabilities

const classifyPrompt = `Analyze the following query and classify its intent.

Available intents:
- summarize: User wants a summary of content
- compare: User wants to compare two or more things
- explain: User wants an explanation of a concept
- research: User wants detailed research on a topic
- read_aloud: User wants text converted to speech
- analyze: User wants analysis of data or content
- vision: User wants image analysis
- general: General question or conversation

Query: %s

Respond with just the intent name and confidence score (0-1).
Format: intent_name:confidence_score`

const researchPrompt = `You are a research assistant. Provide comprehensive, accurate information based on the query and intent.

Query: %s
Intent: %s
Context: %s

Provide detailed, well-structured information. Include:
1. Main concepts and definitions
2. Key facts and statistics
3. Different perspectives or approaches
4. Practical applications or examples
5. Recent developments or trends

Be thorough but concise.`

const comparePrompt = `You are a comparison specialist. Analyze and compare the entities mentioned in the query.

Query: %s
Entities to compare: %s

Provide a structured comparison including:
1. Overview of each entity
2. Key similarities
3. Key differences
4. Advantages and disadvantages
5. Use cases or applications
6. Conclusion with recommendations`

const retrievePrompt = `Based on the retrieved documents, provide a comprehensive answer to the query.

Query: %s
Retrieved Documents:
%s

Synthesize the information from the documents to provide a complete, accurate answer.
If the documents don't contain relevant information, state that clearly.`

const summarizePrompt = `Summarize the following content into a concise, well-structured summary.

Target length: %d words
Content: %s

Provide:
1. A clear, concise summary
2. Key points (3-5 bullet points)
3. Main takeaways`

const critiquePrompt = `Evaluate the quality of the response to the given query based on the criteria.

Query: %s
Response: %s
Evaluation Criteria: %s

Provide:
1. Overall quality score (0-10)
2. Strengths of the response
3. Areas for improvement
4. Whether the response adequately answers the query (Yes/No)`

const defaultVisionPrompt = "Describe this image in detail"

const ocrPrompt = "Extract all text visible in this image. Respond with the text only, preserving line breaks. If there is no text, respond with an empty line."

var critiqueCriteria = "Accuracy and factual correctness; Completeness of the answer; Clarity and readability; Relevance to the query; Proper structure and organization"
