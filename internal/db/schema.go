package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- SESSION TABLE
    -- ==========================================================================
    -- Record IDs are the session UUIDs: session:⟨uuid⟩
    DEFINE TABLE IF NOT EXISTS session SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS user_id ON session TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS metadata ON session TYPE object FLEXIBLE DEFAULT {};
    DEFINE FIELD IF NOT EXISTS created ON session TYPE datetime DEFAULT time::now();

    -- ==========================================================================
    -- MESSAGE TABLE
    -- ==========================================================================
    -- seq comes from counter:message and orders messages chronologically
    DEFINE TABLE IF NOT EXISTS message SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS seq ON message TYPE int;
    DEFINE FIELD IF NOT EXISTS session_id ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS role ON message TYPE string ASSERT $value IN ["user", "assistant", "system"];
    DEFINE FIELD IF NOT EXISTS content ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS escalated ON message TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS created ON message TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS message_session_seq ON message FIELDS session_id, seq;

    -- ==========================================================================
    -- FAQ TABLE
    -- ==========================================================================
    -- No vector index: embedding dimension depends on the configured model
    DEFINE TABLE IF NOT EXISTS faq SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS seq ON faq TYPE int;
    DEFINE FIELD IF NOT EXISTS question ON faq TYPE string;
    DEFINE FIELD IF NOT EXISTS answer ON faq TYPE string;
    DEFINE FIELD IF NOT EXISTS embedding ON faq TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS metadata ON faq TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS created ON faq TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS faq_seq ON faq FIELDS seq UNIQUE;

    -- ==========================================================================
    -- COUNTER TABLE (monotonic sequences)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS counter SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS value ON counter TYPE int DEFAULT 0;
`
