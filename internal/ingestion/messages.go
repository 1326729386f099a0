package ingestion

// Chat commands recognized on the leading token of a message
const (
	CommandStartIngestion = "/addmovie"
	CommandCancel         = "/cancel"
	CommandStart          = "/start"
	CommandHelp           = "/help"
)

const (
	msgWelcome = "Welcome to Movie Bot! 🎬\n\n" +
		"To add a movie:\n" +
		"1. Send /addmovie\n" +
		"2. Send the video link (cloud storage URL) or the video file\n" +
		"3. Send the movie title\n" +
		"4. Upload the poster image\n" +
		"5. Select a category and a DJ\n\n" +
		"Send /cancel at any time to stop."

	msgAskMediaReference = "Please send me the movie's video link (from cloud storage)."
	msgAskTitle          = "🎬 Video link received! Now please provide the movie title."
	msgAlreadyInCatalog  = "ℹ️ This video is already in the catalog. Finishing will update the existing entry."
	msgAskPoster         = "🖼️ Now, please send the movie's poster image."
	msgAskCategory       = "🖼️ Poster received! Now please select a category from the keyboard."
	msgAskDJ             = "🏷️ Category saved! Now please select the DJ from the keyboard."

	msgInvalidMediaReference = "❌ Please provide a valid video link (starting with http) or send the video file."
	msgUnknownMediaReference = "❌ I couldn't find that file. Please send a valid video link or the video file."
	msgMediaReferenceTooLong = "❌ That link is too long. Please send a shorter link or the video file."
	msgTitleRequired         = "❌ Movie title is required. Please provide a valid title."
	msgTitleTooLong          = "❌ That title is too long. Please send a shorter title."
	msgSendImage             = "❌ Please send the poster as an image."
	msgInvalidCategory       = "❌ Invalid category. Please select from the keyboard."
	msgInvalidDJ             = "❌ Invalid DJ. Please select from the keyboard."

	msgIdleHint      = "Send /addmovie to add a movie, or /help for instructions."
	msgIdleImage     = "❌ Please send a video link first using /addmovie command."
	msgUnknownCmd    = "❓ Unknown command. Type /help for available commands."
	msgCanceled      = "Operation canceled. You can start again with /addmovie."
	msgStorageFailed = "❌ Something went wrong while talking to the catalog. Please start again with /addmovie."
	msgSaveFailed    = "❌ Error saving movie to database. Please start again with /addmovie."
)
