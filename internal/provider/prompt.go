package provider

import "fmt"

const promptTemplate = `Generate a travel itinerary for %s for %d days.
Return the response in JSON format with the following structure:
{
  "itinerary": [
    {
      "day": 1,
      "theme": "string",
      "activities": [
        {
          "time": "string",
          "description": "string",
          "location": "string"
        }
      ]
    }
  ]
}
Return only the JSON document.`

// Prompt renders the instruction sent to the provider.
func Prompt(destination string, durationDays int) string {
	return fmt.Sprintf(promptTemplate, destination, durationDays)
}
